package sources

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sovereign-xds/sovereign/internal/common/config"
)

var (
	flakyInstances []Instance
	flakyFail      bool
)

type flakySource struct{}

func (s *flakySource) Get() ([]Instance, error) {
	if flakyFail {
		return nil, errors.New("upstream unavailable")
	}
	return flakyInstances, nil
}

func init() {
	RegisterSource("flaky_test", func(map[string]interface{}) (Source, error) {
		return &flakySource{}, nil
	})
	RegisterModification("drop_named_test", func(instance Instance) (Instance, error) {
		if instance.Name() == "dropme" {
			return nil, nil
		}
		return instance, nil
	})
	RegisterModification("error_named_test", func(instance Instance) (Instance, error) {
		if instance.Name() == "poison" {
			return nil, fmt.Errorf("cannot process %s", instance.Name())
		}
		return instance, nil
	})
}

func googleProxy() map[string]interface{} {
	return map[string]interface{}{
		"name":             "google-proxy",
		"service_clusters": []interface{}{"X1"},
		"domains":          []interface{}{"google.local"},
		"endpoints": []interface{}{
			map[string]interface{}{"address": "google.com.au", "port": 443, "region": "ap-southeast-2"},
			map[string]interface{}{"address": "google.com", "port": 443, "region": "us-west-1"},
		},
	}
}

func httpbinProxy() map[string]interface{} {
	return map[string]interface{}{
		"name":             "httpbin-proxy",
		"service_clusters": []interface{}{"T1"},
		"domains":          []interface{}{"example.local"},
		"endpoints": []interface{}{
			map[string]interface{}{"address": "httpbin.org", "port": 443},
		},
	}
}

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{googleProxy()},
		}},
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{httpbinProxy()},
		}},
	}, nil, time.Minute)
	require.NoError(t, err)
	agg.Refresh()
	return agg
}

func TestMatchNodeCluster(t *testing.T) {
	agg := newTestAggregator(t)

	matched := agg.Match("T1")
	require.Len(t, matched, 1)
	assert.Equal(t, "httpbin-proxy", matched[0].Name())

	matched = agg.Match("X1")
	require.Len(t, matched, 1)
	assert.Equal(t, "google-proxy", matched[0].Name())
}

func TestMatchWildcardNode(t *testing.T) {
	agg := newTestAggregator(t)

	matched := agg.Match("*")
	require.Len(t, matched, 2)
	// Source-declaration order is stable across calls.
	assert.Equal(t, "google-proxy", matched[0].Name())
	assert.Equal(t, "httpbin-proxy", matched[1].Name())

	again := agg.Match("*")
	assert.Equal(t, matched, again)
}

func TestMatchNoCluster(t *testing.T) {
	agg := newTestAggregator(t)
	assert.Empty(t, agg.Match("Z9"))
}

func TestFailingSourceKeepsPreviousContribution(t *testing.T) {
	flakyInstances = []Instance{{"name": "svc-a", "service_clusters": []interface{}{"*"}}}
	flakyFail = false

	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "flaky_test", Config: nil},
	}, nil, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	require.Len(t, agg.All(), 1)

	flakyFail = true
	agg.Refresh()
	require.Len(t, agg.All(), 1, "failing refresh must not replace the prior good view")
	assert.Equal(t, "svc-a", agg.All()[0].Name())

	flakyInstances = []Instance{
		{"name": "svc-a", "service_clusters": []interface{}{"*"}},
		{"name": "svc-b", "service_clusters": []interface{}{"*"}},
	}
	flakyFail = false
	agg.Refresh()
	assert.Len(t, agg.All(), 2)
}

func TestSourceThatNeverSucceededContributesNothing(t *testing.T) {
	flakyFail = true
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "flaky_test", Config: nil},
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{httpbinProxy()},
		}},
	}, nil, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	require.Len(t, agg.All(), 1)
	assert.Equal(t, "httpbin-proxy", agg.All()[0].Name())
}

func TestModificationDropsInstance(t *testing.T) {
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{"name": "dropme"},
				map[string]interface{}{"name": "keeper"},
			},
		}},
	}, []string{"drop_named_test"}, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	require.Len(t, agg.All(), 1)
	assert.Equal(t, "keeper", agg.All()[0].Name())
}

func TestModificationErrorDropsOnlyThatInstance(t *testing.T) {
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{"name": "poison"},
				map[string]interface{}{"name": "keeper"},
			},
		}},
	}, []string{"error_named_test"}, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	require.Len(t, agg.All(), 1)
	assert.Equal(t, "keeper", agg.All()[0].Name())
}

func TestDefaultWildcardClustersModification(t *testing.T) {
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{"name": "bare"},
			},
		}},
	}, []string{"default_wildcard_clusters"}, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	matched := agg.Match("T1")
	require.Len(t, matched, 1)
	assert.Equal(t, "bare", matched[0].Name())
}

func TestUnknownModification(t *testing.T) {
	_, err := NewAggregator(nil, []string{"does_not_exist"}, time.Minute)
	require.Error(t, err)
}

func TestRefreshDoesNotMutateSourceData(t *testing.T) {
	agg, err := NewAggregator([]config.SourceConfig{
		{Type: "inline", Config: map[string]interface{}{
			"instances": []interface{}{
				map[string]interface{}{"name": "bare"},
			},
		}},
	}, []string{"default_wildcard_clusters"}, time.Minute)
	require.NoError(t, err)

	agg.Refresh()
	agg.Refresh()
	require.Len(t, agg.All(), 1)
}
