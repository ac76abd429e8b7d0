package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("validators")

		collection.Fields.Add(
			&core.TextField{Name: "label", Required: true},
			// bcrypt hash of the device key; the plain key never lands
			// in the database.
			&core.TextField{Name: "key_hash", Required: true},
			&core.BoolField{Name: "active"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("validators")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
