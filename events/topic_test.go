package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		in      string
		service string
		path    string
		ok      bool
	}{
		{"//viper/mktdata/ticker/IBM Equity", "//viper/mktdata", "/ticker/IBM Equity", true},
		{"//blp/mktdata/IBM US Equity", "//blp/mktdata", "/IBM US Equity", true},
		{"//blp/refdata", "//blp/refdata", "", true},
		{"IBM US Equity", "", "IBM US Equity", false},
		{"/ticker/IBM Equity", "", "/ticker/IBM Equity", false},
		{"//blp", "", "//blp", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			service, path, ok := SplitTopic(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.service, service)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestQualifyTopic(t *testing.T) {
	assert.Equal(t, "//blp/mktdata/IBM US Equity", QualifyTopic(ServiceMktData, "IBM US Equity"))
	assert.Equal(t, "//viper/mktdata/ticker/IBM Equity", QualifyTopic(ServiceViper, "/ticker/IBM Equity"))
	assert.Equal(t, "//viper/mktdata/ticker/A", QualifyTopic(ServiceMktData, "//viper/mktdata/ticker/A"))
}
