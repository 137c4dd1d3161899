package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/tripflow/agent"
	"github.com/BaSui01/tripflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T, agents agent.Set, cfg Config) *Bus {
	t.Helper()
	b, err := New(agents, cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func fn(label types.IntentLabel, f func(ctx context.Context, task types.AgentTask) (types.AgentResult, error)) agent.Func {
	return agent.Func{Label: label, Fn: f}
}

func task(label types.IntentLabel, text string) types.AgentTask {
	return types.AgentTask{
		ConversationID: "conv-1",
		TaskID:         "task-" + string(label),
		Capability:     label,
		Payload:        types.TaskPayload{Text: text},
		Origin:         types.OriginRouter,
	}
}

func TestBus_DispatchOK(t *testing.T) {
	b := newTestBus(t, agent.Set{
		agent.IDCarRental: fn(types.LabelCar, func(_ context.Context, tk types.AgentTask) (types.AgentResult, error) {
			// agents may leave correlation fields blank
			return types.AgentResult{Status: types.StatusOK, Text: "car booked: " + tk.Payload.Text}, nil
		}),
	}, DefaultConfig())

	res := b.Dispatch(context.Background(), agent.IDCarRental, task(types.LabelCar, "rent a car"), time.Second)

	assert.True(t, res.OK())
	assert.Equal(t, "car booked: rent a car", res.Text)
	assert.Equal(t, types.ConversationID("conv-1"), res.ConversationID)
	assert.Equal(t, "task-car", res.TaskID)
	assert.Equal(t, types.LabelCar, res.Capability)
}

func TestBus_UnknownAgent(t *testing.T) {
	b := newTestBus(t, agent.Set{}, DefaultConfig())

	res := b.Dispatch(context.Background(), agent.IDHotelBooking, task(types.LabelHotel, "hotel"), time.Second)

	assert.Equal(t, types.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrUnknownCapability, res.Err.Code)
	assert.ErrorIs(t, res.Err, ErrUnknownAgent)
}

func TestBus_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	b := newTestBus(t, agent.Set{
		agent.IDHotelBooking: fn(types.LabelHotel, func(ctx context.Context, tk types.AgentTask) (types.AgentResult, error) {
			<-release
			return types.OKResult(tk, "too late", nil), nil
		}),
	}, DefaultConfig())

	start := time.Now()
	res := b.Dispatch(context.Background(), agent.IDHotelBooking, task(types.LabelHotel, "hotel"), 50*time.Millisecond)

	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrAgentTimeout, res.Err.Code)
	assert.Equal(t, types.LabelHotel, res.Capability)
}

func TestBus_CallerCancelledAgentContinues(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan error, 1)
	release := make(chan struct{})
	b := newTestBus(t, agent.Set{
		agent.IDFlightBooking: fn(types.LabelFlight, func(ctx context.Context, tk types.AgentTask) (types.AgentResult, error) {
			close(started)
			<-release
			finished <- ctx.Err()
			return types.OKResult(tk, "done", nil), nil
		}),
	}, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan types.AgentResult, 1)
	go func() {
		resCh <- b.Dispatch(ctx, agent.IDFlightBooking, task(types.LabelFlight, "flight"), 5*time.Second)
	}()

	<-started
	cancel()
	res := <-resCh
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrTransportDisconnect, res.Err.Code)

	close(release)
	select {
	case err := <-finished:
		assert.NoError(t, err, "agent context must outlive the conversation")
	case <-time.After(2 * time.Second):
		t.Fatal("agent never finished")
	}
}

func TestBus_AgentErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, tk types.AgentTask) (types.AgentResult, error)
		code types.ErrorCode
	}{
		{
			name: "plain error",
			fn: func(context.Context, types.AgentTask) (types.AgentResult, error) {
				return types.AgentResult{}, errors.New("backend down")
			},
			code: types.ErrAgentError,
		},
		{
			name: "typed error kept",
			fn: func(context.Context, types.AgentTask) (types.AgentResult, error) {
				return types.AgentResult{}, types.NewError(types.ErrServiceUnavailable, "supplier offline")
			},
			code: types.ErrServiceUnavailable,
		},
		{
			name: "panic",
			fn: func(context.Context, types.AgentTask) (types.AgentResult, error) {
				panic("boom")
			},
			code: types.ErrAgentError,
		},
		{
			name: "unknown status",
			fn: func(context.Context, types.AgentTask) (types.AgentResult, error) {
				return types.AgentResult{Status: "maybe"}, nil
			},
			code: types.ErrAgentError,
		},
		{
			name: "error status without detail",
			fn: func(context.Context, types.AgentTask) (types.AgentResult, error) {
				return types.AgentResult{Status: types.StatusError, Reason: "no rooms"}, nil
			},
			code: types.ErrAgentError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBus(t, agent.Set{agent.IDHotelBooking: fn(types.LabelHotel, tt.fn)}, DefaultConfig())

			res := b.Dispatch(context.Background(), agent.IDHotelBooking, task(types.LabelHotel, "hotel"), time.Second)

			assert.Equal(t, types.StatusError, res.Status)
			require.NotNil(t, res.Err)
			assert.Equal(t, tt.code, res.Err.Code)
			assert.Equal(t, types.LabelHotel, res.Err.Capability)
		})
	}
}

func TestBus_HandoffKeepsRemainingText(t *testing.T) {
	b := newTestBus(t, agent.Set{
		agent.IDFlightBooking: fn(types.LabelFlight, func(_ context.Context, tk types.AgentTask) (types.AgentResult, error) {
			return types.AgentResult{Status: types.StatusHandoff, Reason: "not mine"}, nil
		}),
	}, DefaultConfig())

	res := b.Dispatch(context.Background(), agent.IDFlightBooking, task(types.LabelFlight, "whole travel plan"), time.Second)

	assert.Equal(t, types.StatusHandoff, res.Status)
	assert.Equal(t, "whole travel plan", res.RemainingText)
}

func TestBus_ConcurrentDispatch(t *testing.T) {
	b := newTestBus(t, agent.Set{
		agent.IDActivitiesBooking: fn(types.LabelActivities, func(_ context.Context, tk types.AgentTask) (types.AgentResult, error) {
			time.Sleep(time.Millisecond)
			return types.OKResult(tk, tk.TaskID, nil), nil
		}),
	}, Config{MailboxSize: 4, Workers: 2})

	const n = 50
	var wg sync.WaitGroup
	results := make([]types.AgentResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk := task(types.LabelActivities, "tours")
			tk.TaskID = fmt.Sprintf("t-%d", i)
			results[i] = b.Dispatch(context.Background(), agent.IDActivitiesBooking, tk, 5*time.Second)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		assert.True(t, res.OK(), "result %d", i)
		assert.Equal(t, fmt.Sprintf("t-%d", i), res.Text)
	}
}

func TestBus_Closed(t *testing.T) {
	b, err := New(agent.Set{
		agent.IDDefault: fn(types.LabelGeneral, func(_ context.Context, tk types.AgentTask) (types.AgentResult, error) {
			return types.OKResult(tk, "hi", nil), nil
		}),
	}, DefaultConfig(), zap.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Start(), ErrClosed)

	res := b.Dispatch(context.Background(), agent.IDDefault, task(types.LabelGeneral, "hi"), time.Second)
	require.NotNil(t, res.Err)
	assert.Contains(t, []types.ErrorCode{types.ErrServiceUnavailable, types.ErrAgentTimeout}, res.Err.Code)
}

func TestBus_Introspection(t *testing.T) {
	b := newTestBus(t, agent.NewTravelAgents(agent.DefaultSimulationConfig(), nil, zap.NewNop()), DefaultConfig())

	assert.Len(t, b.Agents(), 6)
	assert.True(t, b.Has(agent.IDDestinationInfo))
	label, ok := b.Capability(agent.IDDestinationInfo)
	assert.True(t, ok)
	assert.Equal(t, types.LabelDestination, label)
	_, ok = b.Capability("nope")
	assert.False(t, ok)
}

func TestNew_RejectsInvalidAgent(t *testing.T) {
	_, err := New(agent.Set{
		"bad": fn(types.LabelMulti, nil),
	}, DefaultConfig(), zap.NewNop(), nil)
	assert.Error(t, err)
}
