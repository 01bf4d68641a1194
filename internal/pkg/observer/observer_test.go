package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type box struct {
	values []int
}

func cloneBox(b *box) *box {
	return &box{values: append([]int(nil), b.values...)}
}

func TestNotifyFollowsSubscriptionOrder(t *testing.T) {
	r := NewRegistry[int](nil)

	var order []string
	r.Subscribe(func(int) { order = append(order, "a") })
	r.Subscribe(func(int) { order = append(order, "b") })
	r.Subscribe(func(int) { order = append(order, "c") })

	r.Notify(1)

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestSameCallbackTwiceIsTwoEntries(t *testing.T) {
	r := NewRegistry[int](nil)

	calls := 0
	fn := func(int) { calls++ }

	first := r.Subscribe(fn)
	r.Subscribe(fn)
	require.Equal(t, 2, r.Len())

	first.Unsubscribe()
	assert.Equal(t, 1, r.Len())

	r.Notify(1)
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry[int](nil)

	a := r.Subscribe(func(int) {})
	r.Subscribe(func(int) {})

	a.Unsubscribe()
	a.Unsubscribe()

	assert.Equal(t, 1, r.Len())
	assert.False(t, a.Active())
}

func TestUnsubscribeDuringNotifySkipsLaterObserver(t *testing.T) {
	r := NewRegistry[int](nil)

	var second *Subscription
	secondCalls := 0

	r.Subscribe(func(int) { second.Unsubscribe() })
	second = r.Subscribe(func(int) { secondCalls++ })

	r.Notify(1)
	r.Notify(2)

	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, r.Len())
}

func TestSubscribeDuringNotifyJoinsNextRound(t *testing.T) {
	r := NewRegistry[int](nil)

	lateCalls := 0
	subscribed := false
	r.Subscribe(func(int) {
		if !subscribed {
			subscribed = true
			r.Subscribe(func(int) { lateCalls++ })
		}
	})

	r.Notify(1)
	assert.Equal(t, 0, lateCalls)

	r.Notify(2)
	assert.Equal(t, 1, lateCalls)
}

func TestEachObserverGetsOwnCopy(t *testing.T) {
	r := NewRegistry(cloneBox)

	var got []*box
	r.Subscribe(func(b *box) {
		b.values[0] = 99
		got = append(got, b)
	})
	r.Subscribe(func(b *box) { got = append(got, b) })

	live := &box{values: []int{1}}
	r.Notify(live)

	require.Len(t, got, 2)
	assert.Equal(t, 1, live.values[0])
	assert.Equal(t, 1, got[1].values[0])
}

func TestDeliverOnlyToRegistered(t *testing.T) {
	r := NewRegistry[int](nil)

	var got []int
	sub := r.Subscribe(func(v int) { got = append(got, v) })

	r.Deliver(sub, 7)
	sub.Unsubscribe()
	r.Deliver(sub, 8)

	assert.Equal(t, []int{7}, got)
}

func TestClearDeactivatesAll(t *testing.T) {
	r := NewRegistry[int](nil)

	a := r.Subscribe(func(int) {})
	b := r.Subscribe(func(int) {})

	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.False(t, a.Active())
	assert.False(t, b.Active())
}
