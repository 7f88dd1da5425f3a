// File: reactor/posted_test.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostedQueue_FIFO(t *testing.T) {
	p := newPostedQueue(4)
	var order []Kind
	assert.True(t, p.add(Message{Kind: KindWakeup}))
	assert.True(t, p.add(Message{Kind: KindResume}))

	for {
		msg, ok := p.take()
		if !ok {
			break
		}
		order = append(order, msg.Kind)
	}
	assert.Equal(t, []Kind{KindWakeup, KindResume}, order)
}

func TestPostedQueue_CapacityRefusal(t *testing.T) {
	p := newPostedQueue(2)
	assert.True(t, p.add(Message{Kind: KindWakeup}))
	assert.True(t, p.add(Message{Kind: KindWakeup}))
	assert.False(t, p.add(Message{Kind: KindWakeup}), "queue beyond capacity must refuse")
	assert.Equal(t, 2, p.pending())
}

func TestPostedQueue_ForceAddIgnoresCapacity(t *testing.T) {
	p := newPostedQueue(1)
	assert.True(t, p.add(Message{Kind: KindWakeup}))
	p.forceAdd(Message{Kind: KindResume})
	assert.Equal(t, 2, p.pending())
}

func TestPostedQueue_AddPaired(t *testing.T) {
	p := newPostedQueue(2)
	assert.False(t, p.addPaired(Message{Kind: KindResume}, func() bool { return false }),
		"a failed doorbell must not enqueue the payload")
	assert.Equal(t, 0, p.pending())

	assert.True(t, p.addPaired(Message{Kind: KindResume}, func() bool { return true }))
	assert.Equal(t, 1, p.pending())
}
