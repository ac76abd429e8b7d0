package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("bookings")

		collection.Fields.Add(
			&core.TextField{Name: "payer", Required: true},
			&core.TextField{Name: "event", Required: true},
			&core.TextField{Name: "payment", Required: true},
			&core.NumberField{Name: "quantity", Required: true, OnlyInt: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "confirmed", "completed", "cancelled"},
			},
			&core.TextField{Name: "cancel_reason"},
			&core.JSONField{Name: "tickets", MaxSize: 1 << 16},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One booking per payment, no matter how often the completion
		// callback is redelivered.
		collection.AddIndex("idx_bookings_payment", true, "payment", "")
		collection.AddIndex("idx_bookings_payer", false, "payer", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("bookings")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
