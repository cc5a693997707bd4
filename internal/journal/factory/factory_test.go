package factory

import (
	"path/filepath"
	"testing"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	for _, dsn := range []string{
		filepath.Join(t.TempDir(), "plain.db"),
		"sqlite://" + filepath.Join(t.TempDir(), "scheme.db"),
	} {
		s, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", dsn, err)
		}
		_ = s.Close()
	}
}

func TestNewSinkFromDSNOpenSearch(t *testing.T) {
	// OpenSearch sinks are lazy; construction never dials.
	s, err := NewSinkFromDSN("opensearch://search.internal:9200/relay-events")
	if err != nil {
		t.Fatalf("opensearch dsn: %v", err)
	}
	_ = s.Close()

	s, err = NewSinkFromDSN("elasticsearch://search.internal:9200")
	if err != nil {
		t.Fatalf("elasticsearch dsn with default index: %v", err)
	}
	_ = s.Close()
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	cases := []struct {
		name string
		dsn  string
	}{
		{"empty", "   "},
		{"unknown scheme", "kafka://broker:9092/topic"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSinkFromDSN(tc.dsn); err == nil {
				t.Fatalf("expected error for %q", tc.dsn)
			}
		})
	}
}
