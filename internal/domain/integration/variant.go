package integration

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ---------------------------------------------------------------------------
// Product variants
// ---------------------------------------------------------------------------

// A product record is one sellable variant. The local side keeps one record
// per SKU, so every remote product is synchronized as one record per
// variant and cross-referenced by variant id.

// ProductRecords splits a remote product into one record per variant. A
// record keeps the product's own members, carries its single variant under
// "variants", the variant id as "id" and the product id as "product_id".
// Its "updated_at" is the later of the product's and the variant's.
func ProductRecords(product RemotePayload) ([]RemotePayload, error) {
	if !product.IsObject() {
		return nil, fmt.Errorf("%w: product is not a JSON object", ErrValidation)
	}
	doc := gjson.ParseBytes(product)
	productID := doc.Get("id")
	variants := doc.Get("variants").Array()

	out := make([]RemotePayload, 0, len(variants))
	for _, v := range variants {
		rec, err := sjson.SetRawBytes(product, "variants", []byte("["+v.Raw+"]"))
		if err != nil {
			return nil, fmt.Errorf("%w: cannot scope variant: %v", ErrValidation, err)
		}
		if id := v.Get("id"); id.Exists() {
			rec, err = sjson.SetRawBytes(rec, "id", []byte(id.Raw))
		} else {
			rec, err = sjson.DeleteBytes(rec, "id")
		}
		if err != nil {
			return nil, fmt.Errorf("%w: cannot scope variant: %v", ErrValidation, err)
		}
		if productID.Exists() {
			if rec, err = sjson.SetRawBytes(rec, "product_id", []byte(productID.Raw)); err != nil {
				return nil, fmt.Errorf("%w: cannot scope variant: %v", ErrValidation, err)
			}
		}
		if later := laterTimestamp(doc.Get("updated_at").String(), v.Get("updated_at").String()); later != "" {
			if rec, err = sjson.SetBytes(rec, "updated_at", later); err != nil {
				return nil, fmt.Errorf("%w: cannot scope variant: %v", ErrValidation, err)
			}
		}
		out = append(out, RemotePayload(rec))
	}
	return out, nil
}

// ProductRecord returns the record of one variant of a remote product
func ProductRecord(product RemotePayload, variantID string) (RemotePayload, error) {
	records, err := ProductRecords(product)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.ID() == variantID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: variant %s of product %s", ErrRemoteNotFound, variantID, product.ID())
}

// RecordsOf returns the records a remote resource of entity stands for
func RecordsOf(entity EntityType, payload RemotePayload) ([]RemotePayload, error) {
	if entity == EntityProduct && payload.Get("variants").IsArray() {
		return ProductRecords(payload)
	}
	return []RemotePayload{payload}, nil
}

// ParentID returns the id of the remote resource a record is part of, the
// product of a variant record
func ParentID(entity EntityType, p RemotePayload) string {
	if entity != EntityProduct {
		return ""
	}
	return p.Get("product_id").String()
}

func laterTimestamp(a, b string) string {
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	switch {
	case errA != nil && errB != nil:
		return ""
	case errA != nil:
		return b
	case errB != nil:
		return a
	case tb.After(ta):
		return b
	default:
		return a
	}
}
