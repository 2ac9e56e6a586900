package iomessaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/openepi/sentinel/pkg/config"
	"github.com/openepi/sentinel/pkg/location"
	"github.com/openepi/sentinel/pkg/pipeline"
	"github.com/openepi/sentinel/pkg/schema"
)

func messagingTree(t *testing.T) *location.Tree {
	t.Helper()
	tree, err := location.New([]*location.Location{
		{ID: 1, Name: "Demo", Level: location.LevelCountry},
		{ID: 2, Name: "North", Level: location.LevelRegion, Parent: 1},
		{ID: 3, Name: "Hilltop", Level: location.LevelDistrict, Parent: 2},
		{ID: 4, Name: "Clinic A", Level: location.LevelClinic, Parent: 3},
	}, nil)
	require.NoError(t, err)
	return tree
}

func facade(t *testing.T, got *[]Message) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var m Message
			require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
			*got = append(*got, m)
			w.WriteHeader(http.StatusOK)
		}))
	t.Cleanup(srv.Close)
	return srv
}

func demoAlert() *schema.Alert {
	return &schema.Alert{
		AlertID:  "ghijkl",
		UUID:     "abcdefghijkl",
		Reason:   "cmd_1",
		Type:     "threshold",
		Date:     time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC),
		Clinic:   4,
		Duration: 1,
	}
}

func TestSendAlertTopics(t *testing.T) {
	var got []Message
	srv := facade(t, &got)

	c, err := NewClient(config.MessagingConfig{
		URL:         srv.URL,
		TopicPrefix: "demo",
		Sender:      "noreply@demo.org",
	}, messagingTree(t))
	require.NoError(t, err)

	require.NoError(t, c.SendAlert(context.Background(), demoAlert()))

	require.Len(t, got, 1)
	m := got[0]
	assert.Equal(t, "noreply@demo.org", m.From)
	assert.Equal(t, "ghijkl", m.ID)
	assert.Contains(t, m.Subject, "cmd_1")
	assert.Contains(t, m.Message, "Clinic A")
	assert.Equal(t, []string{
		"demo-4-cmd_1", "demo-4-allDis",
		"demo-3-cmd_1", "demo-3-allDis",
		"demo-2-cmd_1", "demo-2-allDis",
		"demo-1-cmd_1", "demo-1-allDis",
	}, m.Topics)
}

func TestSilentSuppressesAll(t *testing.T) {
	var got []Message
	srv := facade(t, &got)

	c, err := NewClient(config.MessagingConfig{
		URL: srv.URL, Silent: true,
	}, messagingTree(t))
	require.NoError(t, err)

	require.NoError(t, c.SendAlert(context.Background(), demoAlert()))
	assert.Empty(t, got)
}

func TestStartDateSuppression(t *testing.T) {
	var got []Message
	srv := facade(t, &got)

	c, err := NewClient(config.MessagingConfig{
		URL: srv.URL, StartDate: "2017-06-10",
	}, messagingTree(t))
	require.NoError(t, err)

	// On the start date: suppressed.
	require.NoError(t, c.SendAlert(context.Background(), demoAlert()))
	assert.Empty(t, got)

	// After the start date: delivered.
	a := demoAlert()
	a.Date = a.Date.AddDate(0, 0, 1)
	require.NoError(t, c.SendAlert(context.Background(), a))
	assert.Len(t, got, 1)
}

func TestBadStartDate(t *testing.T) {
	_, err := NewClient(config.MessagingConfig{
		URL: "http://localhost", StartDate: "June 2017",
	}, messagingTree(t))
	assert.Error(t, err)
}

func TestFacadeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.MessagingConfig{URL: srv.URL}, messagingTree(t))
	require.NoError(t, err)

	err = c.SendAlert(context.Background(), demoAlert())
	var facadeErr *FacadeError
	assert.ErrorAs(t, err, &facadeErr)
}

func TestStageSendsAggregateAndIndividual(t *testing.T) {
	var got []Message
	srv := facade(t, &got)

	c, err := NewClient(config.MessagingConfig{
		URL: srv.URL, TopicPrefix: "demo",
	}, messagingTree(t))
	require.NoError(t, err)
	stage := NewStage(c, 6)

	chunk := pipeline.NewChunk()
	chunk.AddAlert(demoAlert())
	chunk.AddCoded(&schema.Data{
		UUID: "mnopqrstuvwx", Type: "case",
		Date: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC), Clinic: 4,
		Variables: datatypes.JSONMap{
			"alert": 1, "alert_type": "individual",
			"alert_reason": "cmd_2", "alert_id": "stuvwx",
		},
	})
	chunk.AddCoded(&schema.Data{
		UUID: "plain", Type: "case", Clinic: 4,
		Variables: datatypes.JSONMap{"tot_1": 1},
	})

	_, err = stage.Run(context.Background(), chunk, nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "ghijkl", got[0].ID)
	assert.Equal(t, "stuvwx", got[1].ID)
	assert.Contains(t, got[1].Message, "cmd_2")
}

func TestStageFailureDoesNotFailChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
	t.Cleanup(srv.Close)

	c, err := NewClient(config.MessagingConfig{URL: srv.URL}, messagingTree(t))
	require.NoError(t, err)
	stage := NewStage(c, 6)

	chunk := pipeline.NewChunk()
	chunk.AddAlert(demoAlert())

	_, err = stage.Run(context.Background(), chunk, nil)
	assert.NoError(t, err)
}
