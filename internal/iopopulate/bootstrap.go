// Package iopopulate seeds the reference tables at setup time: the
// location tree, the device registry and the rule catalogue, loaded from
// the country configuration files. Reseeding uses DELETE + INSERT so
// setup-db is idempotent.
package iopopulate

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/paulmach/orb/geojson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/rules"
	"github.com/openepi/sentinel/pkg/schema"
)

// Bootstrap writes the reference tables through an open GORM session.
type Bootstrap struct {
	db *gorm.DB
}

// NewBootstrap creates the seeder.
func NewBootstrap(db *gorm.DB) *Bootstrap {
	return &Bootstrap{db: db}
}

// NewBootstrapFromPool opens a GORM session over an existing pgx pool.
func NewBootstrapFromPool(pool *pgxpool.Pool) (*Bootstrap, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{Conn: sqlDB}),
		&gorm.Config{},
	)
	if err != nil {
		return nil, NewSeedError("session", err)
	}
	return NewBootstrap(gormDB), nil
}

// Seed replaces the reference tables with the loaded configuration.
func (b *Bootstrap) Seed(
	ctx context.Context,
	root int,
	locs []*location.Location,
	devices []*location.Device,
	vars []*rules.Variable,
) error {
	start := time.Now()

	if err := b.seedLocations(ctx, root, locs); err != nil {
		return err
	}
	if err := b.seedDevices(ctx, devices); err != nil {
		return err
	}
	if err := b.seedVariables(ctx, vars); err != nil {
		return err
	}

	slog.Info("Seeded reference tables",
		"locations", humanize.Comma(int64(len(locs))),
		"devices", humanize.Comma(int64(len(devices))),
		"variables", humanize.Comma(int64(len(vars))),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (b *Bootstrap) seedLocations(
	ctx context.Context,
	root int,
	locs []*location.Location,
) error {
	rows := make([]*schema.Location, 0, len(locs))
	for _, l := range locs {
		row, err := locationRow(l, root)
		if err != nil {
			return NewSeedError("locations", err)
		}
		rows = append(rows, row)
	}
	return b.replace(ctx, "locations", &schema.Location{}, rows)
}

// locationRow converts one tree node into its persisted form. The point
// serializes as "lat,lng" and the area as GeoJSON.
func locationRow(l *location.Location, root int) (*schema.Location, error) {
	row := &schema.Location{
		ID:                l.ID,
		Name:              l.Name,
		Level:             string(l.Level),
		ParentLocation:    l.Parent,
		DeviceID:          strings.Join(l.DeviceIDs, ","),
		ClinicType:        l.ClinicType,
		CaseType:          strings.Join(l.CaseType, ","),
		CaseReport:        l.CaseReport,
		Population:        l.Population,
		StartDate:         l.StartDate,
		CountryLocationID: root,
	}
	if l.Point != nil {
		row.PointLocation = fmt.Sprintf("%f,%f", l.Point.Lat(), l.Point.Lon())
	}
	if len(l.Area) > 0 {
		area, err := geojson.NewGeometry(l.Area).MarshalJSON()
		if err != nil {
			return nil, err
		}
		row.Area = string(area)
	}
	return row, nil
}

func (b *Bootstrap) seedDevices(
	ctx context.Context,
	devices []*location.Device,
) error {
	rows := make([]*schema.Device, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, &schema.Device{
			DeviceID: d.DeviceID,
			Tags:     strings.Join(d.Tags, ","),
		})
	}
	return b.replace(ctx, "devices", &schema.Device{}, rows)
}

func (b *Bootstrap) seedVariables(
	ctx context.Context,
	vars []*rules.Variable,
) error {
	rows := make([]*schema.AggregationVariable, 0, len(vars))
	for _, v := range vars {
		rows = append(rows, variableRow(v))
	}
	return b.replace(ctx, "aggregation_variables", &schema.AggregationVariable{}, rows)
}

func variableRow(v *rules.Variable) *schema.AggregationVariable {
	return &schema.AggregationVariable{
		ID:                 v.ID,
		PK:                 v.PK,
		Type:               v.Type,
		Form:               v.Form,
		DBColumn:           v.DBColumn,
		Method:             v.Method,
		Condition:          v.Condition,
		Calculation:        v.Calculation,
		Category:           strings.Join(v.Category, ","),
		VariableGroup:      v.Group,
		Priority:           v.Priority,
		MultipleLink:       v.MultipleLink,
		SecondaryCondition: v.SecondaryCondition,
		Alert:              v.Alert,
		AlertType:          v.AlertType,
		Disregard:          v.Disregard,
	}
}

// replace wipes one reference table and inserts its fresh rows in
// batches.
func (b *Bootstrap) replace(
	ctx context.Context,
	table string,
	model any,
	rows any,
) error {
	tx := b.db.WithContext(ctx)
	if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
		return NewSeedError(table, err)
	}
	if reflect.ValueOf(rows).Len() == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, 500).Error; err != nil {
		return NewSeedError(table, err)
	}
	return nil
}
