package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(initial map[string]string, env map[string]string) *Service {
	s := NewService(initial)
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return s
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"minho.cache":             "MINHO_CACHE",
		"minho.deploy.interval":   "MINHO_DEPLOY_INTERVAL",
		"bundle-handler.priority": "BUNDLE_HANDLER_PRIORITY",
	}
	for key, want := range tests {
		assert.Equal(t, want, EnvKey(key))
	}
}

func TestProperty_EnvironmentWins(t *testing.T) {
	s := newTestService(map[string]string{"foo.bar": "file"}, map[string]string{"FOO_BAR": "env"})

	assert.Equal(t, "env", s.Property("foo.bar", "default"))
	assert.Equal(t, "default", s.Property("missing", "default"))
	assert.Equal(t, "file", s.Properties()["foo.bar"])
}

func TestDefaults(t *testing.T) {
	s := newTestService(nil, nil)

	assert.NotEmpty(t, s.Property(KeyCache, ""))
	assert.Equal(t, []string{DefaultRepository}, s.Strings(KeyRepositories))
	assert.Equal(t, 500*time.Millisecond, s.Duration(KeyDeployInterval, 0))
}

func TestTypedAccessors(t *testing.T) {
	s := newTestService(map[string]string{
		"n":      " 42 ",
		"bad":    "forty",
		"flag":   "true",
		"wait":   "2s",
		"repos":  "a, ,b,",
		"broken": "soon",
	}, nil)

	assert.Equal(t, 42, s.Int("n", 0))
	assert.Equal(t, 7, s.Int("bad", 7))
	assert.Equal(t, 7, s.Int("unset", 7))
	assert.True(t, s.Bool("flag", false))
	assert.True(t, s.Bool("unset", true))
	assert.Equal(t, 2*time.Second, s.Duration("wait", 0))
	assert.Equal(t, time.Second, s.Duration("broken", time.Second))
	assert.Equal(t, []string{"a", "b"}, s.Strings("repos"))
	assert.Nil(t, s.Strings("unset"))
}

func TestMergeAndSet(t *testing.T) {
	s := newTestService(map[string]string{"a": "1"}, nil)
	s.Merge(map[string]string{"a": "2", "b": "3"})
	s.Set("c", "4")

	props := s.Properties()
	assert.Equal(t, "2", props["a"])
	assert.Equal(t, "3", props["b"])
	assert.Equal(t, "4", props["c"])

	props["a"] = "mutated"
	assert.Equal(t, "2", s.Property("a", ""))
}

func TestApplications(t *testing.T) {
	s := newTestService(map[string]string{
		"application.web.url":       "mvn:org.example/web/1.0/zip",
		"application.web.type":      "bundle",
		"application.web.port":      "8080",
		"application.api.url":       "/opt/api/run.sh",
		"application.api.profile":   "prod",
		"application.api.args":      "--verbose",
		"application.nodot":         "ignored",
		"unrelated.application.url": "ignored",
	}, nil)

	apps, err := s.Applications()
	require.NoError(t, err)
	require.Len(t, apps, 2)

	assert.Equal(t, Application{
		Name:       "api",
		URL:        "/opt/api/run.sh",
		Profile:    "prod",
		Properties: map[string]string{"args": "--verbose"},
	}, apps[0])
	assert.Equal(t, Application{
		Name:       "web",
		URL:        "mvn:org.example/web/1.0/zip",
		Type:       "bundle",
		Properties: map[string]string{"port": "8080"},
	}, apps[1])
}

func TestApplications_MissingURL(t *testing.T) {
	s := newTestService(map[string]string{
		"application.ok.url":      "/bin/true",
		"application.broken.type": "process",
	}, nil)

	apps, err := s.Applications()
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "application.broken.url", verrs[0].Field)
	require.Len(t, apps, 1)
	assert.Equal(t, "ok", apps[0].Name)
}
