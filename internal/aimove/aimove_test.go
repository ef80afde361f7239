package aimove

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-online-chess/internal/board"
	"github.com/park285/cheese-online-chess/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, h fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func TestClientPostsRequest(t *testing.T) {
	var got Request
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/custom" || !ctx.IsPost() {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		if string(ctx.Request.Header.Peek("X-Api-Key")) != "k" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"move":"e5","san":"e5","from":"e7","to":"e5"}`)
	})
	c := NewClient("http://ai.local/", WithHTTPClient(hc), WithPath("custom"), WithHeader("X-Api-Key", "k"))

	s, err := c.Suggest(context.Background(), Request{FEN: board.StartFEN, MoveHistory: []string{"e4"}})
	require.NoError(t, err)
	require.Equal(t, "e7", s.From)
	require.Equal(t, Medium, got.Difficulty)
	require.Equal(t, []string{"e4"}, got.MoveHistory)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"move":"d4"}`)
	})
	c := NewClient("http://ai.local", WithHTTPClient(hc), WithRetry(3))
	s, err := c.Suggest(context.Background(), Request{FEN: board.StartFEN})
	require.NoError(t, err)
	require.Equal(t, "d4", s.Move)
	require.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"Missing required parameters"}`)
	})
	c := NewClient("http://ai.local", WithHTTPClient(hc), WithRetry(3), WithTimeout(time.Second))
	_, err := c.Suggest(context.Background(), Request{FEN: board.StartFEN})
	require.ErrorContains(t, err, "status=400")
	require.Equal(t, int32(1), calls.Load())

	_, err = c.Suggest(context.Background(), Request{})
	require.Error(t, err)
}

type fixed struct {
	s   Suggestion
	err error
}

func (f fixed) Suggest(context.Context, Request) (Suggestion, error) { return f.s, f.err }

func first(int) int { return 0 }

func TestPlayerAcceptsLegalSuggestions(t *testing.T) {
	g, err := board.New("")
	require.NoError(t, err)

	cases := []Suggestion{
		{From: "g1", To: "f3"},
		{Move: "g1f3"},
		{Move: "Nf3"},
		{SAN: "Nf3"},
	}
	for _, s := range cases {
		mv, fb, err := NewPlayer(fixed{s: s}).NextMove(context.Background(), g, Easy)
		require.NoError(t, err)
		require.False(t, fb, "suggestion %+v", s)
		require.Equal(t, board.Candidate{From: "g1", To: "f3"}, mv)
	}
	require.Equal(t, board.StartFEN, g.FEN(), "game must not be mutated")
}

func TestPlayerPromotionDefaultsToQueen(t *testing.T) {
	g, err := board.New("1k6/P7/8/8/8/8/8/7K w - - 0 1")
	require.NoError(t, err)
	mv, fb, err := NewPlayer(fixed{s: Suggestion{Move: "a7a8"}}).NextMove(context.Background(), g, Hard)
	require.NoError(t, err)
	require.False(t, fb)
	require.Equal(t, domain.Queen, mv.Promotion)

	mv, _, err = NewPlayer(fixed{s: Suggestion{From: "a7", To: "a8", Promotion: "n"}}).NextMove(context.Background(), g, Hard)
	require.NoError(t, err)
	require.Equal(t, domain.Knight, mv.Promotion)
}

func TestPlayerFallsBack(t *testing.T) {
	g, err := board.New("")
	require.NoError(t, err)
	legal := g.LegalMoves()

	for _, f := range []fixed{
		{s: Suggestion{Move: "e2e5"}},
		{s: Suggestion{Move: "Qxh7"}},
		{err: errors.New("model down")},
	} {
		mv, fb, err := NewPlayer(f, WithPicker(first)).NextMove(context.Background(), g, Medium)
		require.NoError(t, err)
		require.True(t, fb)
		require.Equal(t, legal[0], mv)
	}
}

func TestPlayerNoLegalMoves(t *testing.T) {
	g, err := board.New("")
	require.NoError(t, err)
	for _, san := range []string{"f3", "e5", "g4", "Qh4#"} {
		_, err := g.ApplySAN(san)
		require.NoError(t, err)
	}
	_, _, err = NewPlayer(fixed{}).NextMove(context.Background(), g, Easy)
	require.ErrorIs(t, err, ErrNoLegalMoves)
}

func TestParseDifficulty(t *testing.T) {
	d, ok := ParseDifficulty(" HARD ")
	require.True(t, ok)
	require.Equal(t, Hard, d)
	d, ok = ParseDifficulty("")
	require.True(t, ok)
	require.Equal(t, Medium, d)
	_, ok = ParseDifficulty("grandmaster")
	require.False(t, ok)
}
