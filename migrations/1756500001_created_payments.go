package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.TextField{Name: "payer", Required: true},
			// Amounts are decimal strings; float columns drift.
			&core.TextField{Name: "amount", Required: true},
			&core.TextField{Name: "currency", Required: true},
			&core.SelectField{
				Name:      "purpose",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"booking", "subscription", "upgrade", "refund"},
			},
			&core.TextField{Name: "event"},
			&core.NumberField{Name: "quantity", OnlyInt: true},
			&core.TextField{Name: "external_ref"},
			&core.TextField{Name: "qr_code"},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "completed", "failed", "refunded", "partially_refunded"},
			},
			&core.TextField{Name: "refunded_amount"},
			&core.TextField{Name: "failure_reason"},
			&core.DateField{Name: "completed_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_payments_external_ref", true, "external_ref", "external_ref != ''")
		collection.AddIndex("idx_payments_payer", false, "payer", "")
		collection.AddIndex("idx_payments_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
