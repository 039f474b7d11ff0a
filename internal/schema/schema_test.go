package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderSchema() InputSchema {
	return InputSchema{
		Params: []Param{
			{Name: "account_id", Type: TypeString, Required: true},
			{Name: "order_id", Type: TypeString, Required: true},
			{Name: "quantity", Type: TypeInteger, Required: false},
			{Name: "express", Type: TypeBoolean, Required: false},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("all required present", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": "acct-1",
			"order_id":   "ord-9",
		})
		assert.NoError(t, err)
	})

	t.Run("missing required parameter", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"order_id": "ord-9",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"account_id"}, verr.Missing)
		assert.Empty(t, verr.Invalid)
	})

	t.Run("nil value counts as missing", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": nil,
			"order_id":   "ord-9",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"account_id"}, verr.Missing)
	})

	t.Run("wrong type on required parameter", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": 42.0,
			"order_id":   "ord-9",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"account_id"}, verr.Invalid)
	})

	t.Run("optional parameter absent is fine", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": "acct-1",
			"order_id":   "ord-9",
		})
		assert.NoError(t, err)
	})

	t.Run("optional parameter present must be typed", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": "acct-1",
			"order_id":   "ord-9",
			"express":    "yes",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"express"}, verr.Invalid)
	})

	t.Run("integer accepts whole float64", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": "acct-1",
			"order_id":   "ord-9",
			"quantity":   3.0,
		})
		assert.NoError(t, err)
	})

	t.Run("integer rejects fractional float64", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"account_id": "acct-1",
			"order_id":   "ord-9",
			"quantity":   3.5,
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"quantity"}, verr.Invalid)
	})

	t.Run("fields are sorted and combined", func(t *testing.T) {
		err := orderSchema().Validate(map[string]any{
			"express": "yes",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"account_id", "express", "order_id"}, verr.Fields())
	})

	t.Run("array and object types", func(t *testing.T) {
		sch := InputSchema{Params: []Param{
			{Name: "tags", Type: TypeArray, Required: true},
			{Name: "meta", Type: TypeObject, Required: true},
		}}
		assert.NoError(t, sch.Validate(map[string]any{
			"tags": []any{"a", "b"},
			"meta": map[string]any{"k": "v"},
		}))

		err := sch.Validate(map[string]any{
			"tags": "a,b",
			"meta": []any{},
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.ElementsMatch(t, []string{"tags", "meta"}, verr.Invalid)
	})
}
