package application_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/issuesync/internal/application"
	"github.com/ericfisherdev/issuesync/internal/domain/model"
)

func TestSettingsProvider_ReturnsInitialValues(t *testing.T) {
	defaults := application.RequestDefaults{Owner: "acme", Repo: "widgets", ProjectTitle: "Roadmap"}
	provider := application.NewSettingsProvider(testSettings, defaults)

	assert.Equal(t, testSettings, provider.Settings())
	assert.Equal(t, defaults, provider.Defaults())
}

func TestSettingsProvider_ReplaceSwapsValues(t *testing.T) {
	provider := application.NewSettingsProvider(testSettings, application.RequestDefaults{Owner: "acme"})

	replacement := testSettings
	replacement.Token = "rotated"
	provider.Replace(replacement, application.RequestDefaults{Owner: "other"})

	assert.Equal(t, "rotated", provider.Settings().Token)
	assert.Equal(t, "other", provider.Defaults().Owner)
}

func TestSettingsProvider_HasToken(t *testing.T) {
	provider := application.NewSettingsProvider(model.RunSettings{Token: "   "}, application.RequestDefaults{})

	require.False(t, provider.HasToken())

	provider.Replace(testSettings, application.RequestDefaults{})

	require.True(t, provider.HasToken())
}

func TestSettingsProvider_ApplyDefaults(t *testing.T) {
	provider := application.NewSettingsProvider(testSettings, application.RequestDefaults{
		Owner: "acme", Repo: "widgets", ProjectTitle: "Roadmap",
	})

	got := provider.ApplyDefaults(model.SyncRequest{Repo: "explicit", ProjectTitle: "  "})

	assert.Equal(t, "acme", got.Owner)
	assert.Equal(t, "explicit", got.Repo)
	assert.Equal(t, "Roadmap", got.ProjectTitle)
}

func TestSettingsProvider_ConcurrentReadReplaceSafety(t *testing.T) {
	original := testSettings
	replacement := testSettings
	replacement.Token = "rotated"
	provider := application.NewSettingsProvider(original, application.RequestDefaults{})

	const goroutines = 100
	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	// Half the goroutines read, half write.
	for range goroutines {
		go func() {
			defer wg.Done()
			got := provider.Settings()
			assert.Contains(t, []string{"test-token", "rotated"}, got.Token)
		}()
		go func() {
			defer wg.Done()
			provider.Replace(replacement, application.RequestDefaults{})
		}()
	}

	wg.Wait()

	assert.Equal(t, "rotated", provider.Settings().Token)
}
