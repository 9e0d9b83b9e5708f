package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParseTurn_ToolCalls(t *testing.T) {
	turn := ParseTurn(`{"action":"tool_calls","thought":"look around","tool_calls":[{"name":"list_dir","arguments":{"targetPath":"."}},{"name":"  "}]}`)
	tc, ok := turn.(ToolCalls)
	require.True(t, ok, "got %T", turn)
	assert.Equal(t, "look around", tc.Thought)
	require.Len(t, tc.Calls, 1)
	assert.Equal(t, "list_dir", tc.Calls[0].Name)
	assert.JSONEq(t, `{"targetPath":"."}`, string(tc.Calls[0].Arguments))
}

func TestParseTurn_SingleToolForm(t *testing.T) {
	turn := ParseTurn(`{"action":"tool","tool_name":"discover_entrypoints"}`)
	tc, ok := turn.(ToolCalls)
	require.True(t, ok, "got %T", turn)
	require.Len(t, tc.Calls, 1)
	assert.JSONEq(t, `{}`, string(tc.Calls[0].Arguments))
}

func TestParseTurn_FinalFencedAndBare(t *testing.T) {
	fenced := "Here you go:\n```json\n{\"action\":\"final\",\"final_report\":{\"architectureFindings\":[]}}\n```"
	fr, ok := ParseTurn(fenced).(FinalReport)
	require.True(t, ok)
	assert.JSONEq(t, `{"architectureFindings":[]}`, string(fr.Report))

	bare := `{"architectureFindings":[{"title":"a"}],"risks":[]}`
	fr, ok = ParseTurn(bare).(FinalReport)
	require.True(t, ok)
	assert.JSONEq(t, bare, string(fr.Report))
}

func TestParseTurn_Malformed(t *testing.T) {
	for _, raw := range []string{"no json here", `{"action":"dance"}`, `{"action":"final"}`, `{"foo":1}`, `{broken`} {
		_, ok := ParseTurn(raw).(Malformed)
		assert.True(t, ok, "expected Malformed for %q", raw)
	}
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, CountTokens("   "))
	assert.Equal(t, 3, CountTokens("one two three"))
	assert.Equal(t, 11, CountTokens("这是一个没有空格的中文句子啊啊"))
	assert.Equal(t, 5, EstimateMessages([]Message{{Content: "a b"}, {Content: "c d e"}}))
}

type flakyClient struct {
	calls atomic.Int32
	fail  int32
	err   error
}

func (f *flakyClient) Name() string { return "flaky" }
func (f *flakyClient) Close() error { return nil }
func (f *flakyClient) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	if f.calls.Add(1) <= f.fail {
		return nil, f.err
	}
	return &Response{Turn: ParseTurn(`{"action":"final","final_report":{"risks":[]}}`)}, nil
}

func TestRetry_RecoversAndStopsOnPermanent(t *testing.T) {
	inner := &flakyClient{fail: 2, err: errors.New("transient")}
	c := Wrap(inner, Retry(3, time.Millisecond))
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())

	perm := &flakyClient{fail: 5, err: NewPermanentError(errors.New("bad key"))}
	c = Wrap(perm, Retry(3, time.Millisecond))
	_, err = c.Complete(context.Background(), nil, nil)
	var pErr *PermanentError
	require.ErrorAs(t, err, &pErr)
	assert.EqualValues(t, 1, perm.calls.Load())
}

func TestRateLimit_CloseStopsLimiter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	c := Wrap(&flakyClient{}, Logging(nil), RateLimit(1000, 2))
	_, err := c.Complete(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	drained := Wrap(&flakyClient{}, RateLimit(0.001, 1))
	defer drained.Close()
	_, err = drained.Complete(ctx, nil, nil)
	require.NoError(t, err)
	_, err = drained.Complete(ctx, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimit_DisabledReturnsInner(t *testing.T) {
	inner := &flakyClient{}
	assert.Same(t, Client(inner), RateLimit(0, 5)(inner))
}

func TestScriptedClient_ReplaysThenFallback(t *testing.T) {
	s := NewScriptedClient(`{"action":"tool","tool_name":"list_dir"}`)
	s.Fallback = func(msgs []Message, tools []ToolSpec) string {
		b, _ := json.Marshal(map[string]any{"action": "final", "final_report": map[string]any{"unknowns": []string{"x"}}})
		return string(b)
	}
	ctx := context.Background()
	r1, err := s.Complete(ctx, []Message{{Role: RoleUser, Content: "q"}}, []ToolSpec{{Name: "list_dir"}})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", KindOf(r1.Turn))
	r2, err := s.Complete(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "final", KindOf(r2.Turn))
	assert.Len(t, s.Requests(), 2)
	assert.Len(t, s.ToolSets()[0], 1)

	empty := NewScriptedClient()
	_, err = empty.Complete(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrScriptExhausted)
}
