package cmd

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openepi/sentinel/internal/ioalert"
	"github.com/openepi/sentinel/internal/ioconfig"
	"github.com/openepi/sentinel/internal/iolink"
	"github.com/openepi/sentinel/internal/iomessaging"
	"github.com/openepi/sentinel/internal/ioqc"
	"github.com/openepi/sentinel/internal/iosource"
	"github.com/openepi/sentinel/internal/iowrite"
	"github.com/openepi/sentinel/pkg/coder"
	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/epiweek"
	"github.com/openepi/sentinel/pkg/links"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/rules"
)

// fakeInitialTotal is how many synthetic records the FAKE_DATA initial
// source generates for a demo import.
const fakeInitialTotal = 500

// deployment is everything loaded from the country configuration files.
type deployment struct {
	country    *config.CountryConfig
	vars       []*rules.Variable
	catalogue  *rules.Catalogue
	links      *links.Table
	locations  []*location.Location
	devices    []*location.Device
	tree       *location.Tree
	exclusions map[string]map[string]bool
	scheme     epiweek.Scheme
}

// loadDeployment reads and compiles the country configuration.
func loadDeployment(cfg *config.Config) (*deployment, error) {
	cc, err := ioconfig.LoadCountry(cfg.CountryConfigFile)
	if err != nil {
		return nil, err
	}
	vars, err := ioconfig.LoadCodes(cfg.ConfigDirectory, cc)
	if err != nil {
		return nil, err
	}
	cat, err := rules.Load(vars, cc.MainForms())
	if err != nil {
		return nil, err
	}
	lt, err := ioconfig.LoadLinks(cfg.ConfigDirectory, cc)
	if err != nil {
		return nil, err
	}
	locs, devs, err := ioconfig.LoadLocations(cfg.ConfigDirectory, cc)
	if err != nil {
		return nil, err
	}
	tree, err := location.New(locs, devs)
	if err != nil {
		return nil, err
	}
	excl, err := ioconfig.LoadExclusions(cfg.ConfigDirectory, cc)
	if err != nil {
		return nil, err
	}
	scheme, err := epiweek.Parse(cc.EpiWeek, cc.EpiWeekStarts)
	if err != nil {
		return nil, err
	}
	return &deployment{
		country:    cc,
		vars:       vars,
		catalogue:  cat,
		links:      lt,
		locations:  locs,
		devices:    devs,
		tree:       tree,
		exclusions: excl,
		scheme:     scheme,
	}, nil
}

// buildStages wires the processing graph in its fixed order. The writer
// is also returned because it doubles as the step monitor.
func buildStages(
	cfg *config.Config,
	dep *deployment,
	pool *pgxpool.Pool,
) ([]pipeline.Stage, *iowrite.Writer, error) {
	qc, err := ioqc.NewQualityControl(
		dep.country, dep.catalogue, dep.tree, dep.scheme, dep.exclusions)
	if err != nil {
		return nil, nil, err
	}
	visits := ioqc.NewInitialVisitControl(dep.country, ioqc.NewVisitStore(pool))

	cd, err := coder.New(
		dep.country, dep.catalogue, dep.tree, dep.scheme, dep.links)
	if err != nil {
		return nil, nil, err
	}
	resolver := iolink.NewResolver(dep.country, dep.links, iolink.NewLinkStore(pool))
	coding := iolink.NewCodingStage(dep.country, resolver, cd)

	detector := ioalert.NewDetector(
		dep.country, dep.catalogue, dep.scheme, ioalert.NewAlertStore(pool))

	writer := iowrite.NewWriter(pool, cfg.Database.BatchSize)

	messenger, err := iomessaging.NewClient(cfg.Messaging, dep.tree)
	if err != nil {
		return nil, nil, err
	}
	delivery := iomessaging.NewStage(messenger, dep.country.AlertIDLength)

	stages := []pipeline.Stage{qc, visits, coding, detector, writer, delivery}
	return stages, writer, nil
}

// buildSource selects the record source. Initial sources run one pass;
// stream sources run until cancelled.
func buildSource(
	ctx context.Context,
	cfg *config.Config,
	dep *deployment,
	kind string,
	initial bool,
) (iosource.Source, error) {
	switch kind {
	case config.SourceAWSS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		poll := time.Duration(cfg.Sources.S3PollSeconds) * time.Second
		if initial {
			poll = 0
		}
		return iosource.NewS3Source(
			s3.NewFromConfig(awsCfg),
			cfg.Sources.S3Bucket, cfg.Sources.S3Prefix, poll), nil

	case config.SourceAWSSQS, config.SourceLocalSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		var optFns []func(*sqs.Options)
		if kind == config.SourceLocalSQS {
			// Local queue emulators serve every queue from one endpoint.
			optFns = append(optFns, func(o *sqs.Options) {
				o.BaseEndpoint = &cfg.Sources.SQSQueueURL
			})
		}
		return iosource.NewSQSSource(
			sqs.NewFromConfig(awsCfg, optFns...),
			cfg.Sources.SQSQueueURL), nil

	case config.SourceAWSRDS, config.SourceLocalRDS:
		pool, err := pgxpool.New(ctx, cfg.Sources.PersistentURL)
		if err != nil {
			return nil, err
		}
		return iosource.NewRDSSource(pool, dep.country), nil

	case config.SourceLocalCSV:
		return iosource.NewCSVSource(cfg.DataDirectory, dep.country), nil

	case config.SourceFakeData:
		var deviceIDs []string
		for _, d := range dep.devices {
			deviceIDs = append(deviceIDs, d.DeviceID)
		}
		interval := time.Duration(cfg.Sources.FakeIntervalSeconds) * time.Second
		total := 0
		if initial {
			interval = 0
			total = fakeInitialTotal
		}
		return iosource.NewFakeSource(
			dep.country, dep.catalogue, deviceIDs,
			interval, cfg.Sources.FakePerInterval, total), nil
	}
	return nil, NewSourceKindError(kind)
}
