package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestDetect(t *testing.T) {
	d := New()

	t.Run("no keywords", func(t *testing.T) {
		det := d.Detect("t1", "where is my order?")
		assert.False(t, det.ShouldEscalate)
		assert.Empty(t, det.Keywords)
		assert.Zero(t, det.Confidence)
	})

	t.Run("single keyword", func(t *testing.T) {
		det := d.Detect("t1", "Get me a MANAGER please")
		assert.True(t, det.ShouldEscalate)
		assert.Equal(t, []string{"manager"}, det.Keywords)
		assert.InDelta(t, 1.0/3.0, det.Confidence, 0.01)
		assert.NotEmpty(t, det.Reason)
	})

	t.Run("confidence saturates at three hits", func(t *testing.T) {
		det := d.Detect("t1", "this is unacceptable, let me talk to a real person or a supervisor, I'll sue")
		assert.True(t, det.ShouldEscalate)
		assert.GreaterOrEqual(t, len(det.Keywords), 3)
		assert.Equal(t, 1.0, det.Confidence)
	})

	t.Run("tenant keywords are additive and case-insensitive", func(t *testing.T) {
		d := New()
		d.SetTenantKeywords("t1", []string{"Chargeback"})

		det := d.Detect("t1", "I'm filing a chargeback")
		assert.True(t, det.ShouldEscalate)
		assert.Contains(t, det.Keywords, "Chargeback")

		det = d.Detect("t2", "I'm filing a chargeback")
		assert.False(t, det.ShouldEscalate)
	})

	t.Run("keyword updates race with detection", func(t *testing.T) {
		d := New()

		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				for j := 0; j < 100; j++ {
					d.SetTenantKeywords("t1", []string{"chargeback"})
					d.Detect("t1", "I'm filing a chargeback")
				}
				return nil
			})
		}
		assert.NoError(t, g.Wait())

		det := d.Detect("t1", "I'm filing a chargeback")
		assert.True(t, det.ShouldEscalate)
	})
}
