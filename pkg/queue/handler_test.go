package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indexnowstudio/jobs/pkg/queue"
)

func TestNewTaskHandler(t *testing.T) {
	t.Parallel()

	t.Run("decodes and calls fn", func(t *testing.T) {
		t.Parallel()
		var got greetPayload
		h := queue.NewTaskHandler(func(_ context.Context, p greetPayload) error {
			got = p
			return nil
		})
		assert.Equal(t, "test.greet", h.Name())

		res, err := h.Handle(context.Background(), json.RawMessage(`{"name":"bob"}`))
		require.NoError(t, err)
		assert.Nil(t, res)
		assert.Equal(t, "bob", got.Name)
	})

	t.Run("invalid payload is permanent and never reaches fn", func(t *testing.T) {
		t.Parallel()
		called := false
		h := queue.NewTaskHandler(func(context.Context, greetPayload) error {
			called = true
			return nil
		})

		_, err := h.Handle(context.Background(), json.RawMessage(`{"name":""}`))
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))

		_, err = h.Handle(context.Background(), json.RawMessage(`not json`))
		require.Error(t, err)
		assert.True(t, queue.IsPermanent(err))

		assert.False(t, called)
	})

	t.Run("handler errors stay transient", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		h := queue.NewTaskHandler(func(context.Context, greetPayload) error { return boom })

		_, err := h.Handle(context.Background(), json.RawMessage(`{"name":"x"}`))
		assert.ErrorIs(t, err, boom)
		assert.False(t, queue.IsPermanent(err))
	})
}

func TestNewResultTaskHandler(t *testing.T) {
	t.Parallel()

	h := queue.NewResultTaskHandler(func(_ context.Context, p plainPayload) (map[string]int, error) {
		return map[string]int{"double": p.N * 2}, nil
	})

	res, err := h.Handle(context.Background(), json.RawMessage(`{"n":21}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"double":42}`, string(res))
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("gone")
	err := queue.Permanent(base)
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "gone", err.Error())
	assert.Same(t, err, queue.Permanent(err))
	assert.NoError(t, queue.Permanent(nil))
	assert.False(t, queue.IsPermanent(base))
}

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := queue.ExponentialBackoff(2*time.Second, 10*time.Second)
	assert.Equal(t, 2*time.Second, b(1))
	assert.Equal(t, 4*time.Second, b(2))
	assert.Equal(t, 8*time.Second, b(3))
	assert.Equal(t, 10*time.Second, b(4))
	assert.Equal(t, 10*time.Second, b(40))
}
