package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoVariantProduct = `{"id":10,"title":"Shirt","updated_at":"2024-05-01T10:00:00Z","variants":[` +
	`{"id":101,"sku":"SHIRT-S","updated_at":"2024-05-02T10:00:00Z"},` +
	`{"id":102,"sku":"SHIRT-M","updated_at":"2024-04-01T10:00:00Z"}]}`

func TestProductRecords(t *testing.T) {
	records, err := ProductRecords(RemotePayload(twoVariantProduct))
	require.NoError(t, err)
	require.Len(t, records, 2)

	small, medium := records[0], records[1]
	assert.Equal(t, "101", small.ID())
	assert.Equal(t, "10", small.Get("product_id").String())
	assert.Equal(t, "Shirt", small.Get("title").String())
	assert.Len(t, small.Get("variants").Array(), 1)
	assert.Equal(t, "SHIRT-S", small.Get("variants.0.sku").String())
	assert.Equal(t, "2024-05-02T10:00:00Z", small.Get("updated_at").String(), "newer variant edit wins")

	assert.Equal(t, "102", medium.ID())
	assert.Equal(t, "SHIRT-M", medium.Get("variants.0.sku").String())
	assert.Equal(t, "2024-05-01T10:00:00Z", medium.Get("updated_at").String(), "newer product edit wins")

	t.Run("the source payload is left alone", func(t *testing.T) {
		product := RemotePayload(twoVariantProduct)
		_, err := ProductRecords(product)
		require.NoError(t, err)
		assert.Equal(t, twoVariantProduct, string(product))
	})

	t.Run("a product without variants has no records", func(t *testing.T) {
		records, err := ProductRecords(RemotePayload(`{"id":1,"title":"Empty"}`))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("non objects are rejected", func(t *testing.T) {
		_, err := ProductRecords(RemotePayload(`[1,2]`))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestProductRecord(t *testing.T) {
	rec, err := ProductRecord(RemotePayload(twoVariantProduct), "102")
	require.NoError(t, err)
	assert.Equal(t, "SHIRT-M", rec.Get("variants.0.sku").String())

	_, err = ProductRecord(RemotePayload(twoVariantProduct), "999")
	assert.ErrorIs(t, err, ErrRemoteNotFound)
}

func TestRecordsOf(t *testing.T) {
	records, err := RecordsOf(EntityProduct, RemotePayload(twoVariantProduct))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "10", ParentID(EntityProduct, records[0]))

	customer := RemotePayload(`{"id":5,"email":"a@example.com"}`)
	records, err = RecordsOf(EntityCustomer, customer)
	require.NoError(t, err)
	assert.Equal(t, []RemotePayload{customer}, records)
	assert.Empty(t, ParentID(EntityCustomer, customer))

	// a deletion notice carries no variants
	records, err = RecordsOf(EntityProduct, RemotePayload(`{"id":10}`))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
