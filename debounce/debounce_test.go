package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) commit(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestRapidInputCommitsOnce(t *testing.T) {
	rec := &recorder{}
	d := New(40*time.Millisecond, rec.commit)
	defer d.Stop()

	d.Set("a")
	d.Set("ab")
	d.Set("abc")

	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"abc"}, rec.got())
}

func TestSpacedInputCommitsEachValue(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.commit)
	defer d.Stop()

	d.Set("a")
	require.Eventually(t, func() bool { return len(rec.got()) == 1 }, time.Second, 5*time.Millisecond)
	d.Set("ab")
	require.Eventually(t, func() bool { return len(rec.got()) == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"a", "ab"}, rec.got())
}

func TestStopDiscardsPendingCommit(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.commit)

	d.Set("abc")
	d.Stop()
	d.Set("ignored")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.got())
	_, ok := d.Pending()
	assert.False(t, ok)
}

func TestFlushCommitsImmediatelyAndOnlyOnce(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.commit)
	defer d.Stop()

	d.Set("ali")
	v, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, "ali", v)

	assert.True(t, d.Flush())
	assert.Equal(t, []string{"ali"}, rec.got())
	assert.False(t, d.Flush())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []string{"ali"}, rec.got(), "timer must not commit a flushed value")
}

func TestNonPositiveDelayUsesDefault(t *testing.T) {
	d := New(0, func(string) {})
	defer d.Stop()
	assert.Equal(t, DefaultDelay, d.delay)
}
