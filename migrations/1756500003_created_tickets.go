package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("tickets")

		collection.Fields.Add(
			&core.TextField{Name: "number", Required: true},
			&core.TextField{Name: "booking", Required: true},
			&core.NumberField{Name: "seat", Required: true, OnlyInt: true},
			&core.TextField{Name: "event", Required: true},
			&core.TextField{Name: "token", Required: true},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"valid", "used", "cancelled"},
			},
			&core.DateField{Name: "issued_at", Required: true},
			&core.DateField{Name: "used_at"},
			&core.TextField{Name: "validator_id"},
			&core.TextField{Name: "gate"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_tickets_number", true, "number", "")
		collection.AddIndex("idx_tickets_booking", false, "booking", "")
		// One admission per booked seat, no matter how many issuers race.
		collection.AddIndex("idx_tickets_booking_seat", true, "booking, seat", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
