package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/pgpulse/errors"
	"github.com/grovetools/pgpulse/pkg/snapshot"
)

func snap(seq uint64) snapshot.Snapshot {
	return snapshot.Snapshot{Sequence: seq, Sources: map[snapshot.SourceID]snapshot.SourceReading{}}
}

func drain(sub *Subscription) []Delivery {
	var out []Delivery
	for {
		select {
		case d, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, d)
		default:
			return out
		}
	}
}

func sequences(ds []Delivery) []uint64 {
	var seqs []uint64
	for _, d := range ds {
		if d.Type == DeliverySnapshot {
			seqs = append(seqs, d.Snapshot.Sequence)
		}
	}
	return seqs
}

func TestClaimIsExclusive(t *testing.T) {
	b := New(4)
	live, err := b.Claim("live")
	require.NoError(t, err)
	assert.Equal(t, "live", b.Producer())

	_, err = b.Claim("replay")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeProducerClaimed))

	live.Release()
	assert.Equal(t, "", b.Producer())

	replay, err := b.Claim("replay")
	require.NoError(t, err)
	assert.Equal(t, "replay", replay.Name())
}

func TestReleasedPublisherIsIgnored(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	p.Publish(snap(0))
	p.Release()
	p.Publish(snap(1))

	assert.Equal(t, []uint64{0}, sequences(drain(sub)))
}

func TestPublishPreservesOrder(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		p.Publish(snap(i))
	}

	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, sequences(drain(sub)))
	cur, ok := b.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(4), cur.Sequence)
}

func TestOutOfOrderPublishIsDropped(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	p.Publish(snap(3))
	p.Publish(snap(2))
	p.Publish(snap(4))

	assert.Equal(t, []uint64{3, 4}, sequences(drain(sub)))
}

func TestSeekMayMoveBackward(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("tui")
	p, err := b.Claim("replay")
	require.NoError(t, err)

	p.Publish(snap(10))
	p.Seek(snap(2))
	p.Publish(snap(3))

	got := drain(sub)
	assert.Equal(t, []uint64{10, 2, 3}, sequences(got))
	assert.False(t, got[0].Seek)
	assert.True(t, got[1].Seek)
	assert.Equal(t, "replay", got[1].Producer)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New(2)
	slow := b.Subscribe("slow")
	fast := b.Subscribe("fast")
	p, err := b.Claim("live")
	require.NoError(t, err)

	for i := uint64(0); i < 5; i++ {
		p.Publish(snap(i))
		// fast keeps up
		<-fast.C()
	}

	assert.Equal(t, []uint64{3, 4}, sequences(drain(slow)))
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
}

func TestSubscribeStartsWithCurrent(t *testing.T) {
	b := New(4)
	p, err := b.Claim("live")
	require.NoError(t, err)
	p.Publish(snap(7))

	late := b.Subscribe("late")
	got := drain(late)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Snapshot.Sequence)
}

func TestNoticesShareTheMailbox(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	p.Publish(snap(0))
	b.Notify(NoticeWarning, "recorder", "recording disabled")
	p.Publish(snap(1))

	got := drain(sub)
	require.Len(t, got, 3)
	assert.Equal(t, DeliveryNotice, got[1].Type)
	require.NotNil(t, got[1].Notice)
	assert.Equal(t, "recorder", got[1].Notice.Source)
	assert.Equal(t, NoticeWarning, got[1].Notice.Level)
}

func TestCoalescingNeverDropsNotices(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	p.Publish(snap(0))
	b.Notify(NoticeWarning, "recorder", "recording disabled")
	for i := uint64(1); i <= 8; i++ {
		p.Publish(snap(i))
	}

	got := drain(sub)
	require.Len(t, got, 4)
	assert.Equal(t, DeliveryNotice, got[0].Type)
	assert.Equal(t, "recording disabled", got[0].Notice.Message)
	assert.Equal(t, []uint64{6, 7, 8}, sequences(got))
	assert.Equal(t, uint64(6), sub.Dropped())
}

func TestNoticesDisplaceOnlyNotices(t *testing.T) {
	b := New(2)
	sub := b.Subscribe("tui")
	p, err := b.Claim("live")
	require.NoError(t, err)

	b.Notify(NoticeInfo, "scheduler", "first")
	b.Notify(NoticeInfo, "scheduler", "second")
	p.Publish(snap(0))
	b.Notify(NoticeInfo, "scheduler", "third")

	got := drain(sub)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Notice.Message)
	assert.Equal(t, "third", got[1].Notice.Message)
	assert.Equal(t, uint64(2), sub.Dropped())
}

func TestStalePublisherCannotTouchNewClaim(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("tui")
	old, err := b.Claim("live")
	require.NoError(t, err)
	old.Release()

	current, err := b.Claim("live")
	require.NoError(t, err)
	old.Publish(snap(5))
	old.Release()
	assert.Equal(t, "live", b.Producer())

	current.Publish(snap(1))
	assert.Equal(t, []uint64{1}, sequences(drain(sub)))

	_, err = b.Claim("replay")
	assert.True(t, errors.Is(err, errors.ErrCodeProducerClaimed))
}

func TestUnsubscribeAndClose(t *testing.T) {
	b := New(4)
	a := b.Subscribe("a")
	c := b.Subscribe("c")
	assert.Equal(t, 2, b.Subscribers())

	b.Unsubscribe(a)
	_, ok := <-a.C()
	assert.False(t, ok)
	// second call is a no-op
	b.Unsubscribe(a)

	b.Close()
	_, ok = <-c.C()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())

	after := b.Subscribe("after")
	_, ok = <-after.C()
	assert.False(t, ok)
}
