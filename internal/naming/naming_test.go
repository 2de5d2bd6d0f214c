package naming

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "spaces become underscores",
			in:   "Ad Group Age Target",
			want: "ad_group_age_target",
		},
		{
			name: "single word lower cased",
			in:   "Campaign",
			want: "campaign",
		},
		{
			name: "hyphens and dots replaced",
			in:   "Final-Url.v2",
			want: "final_url_v2",
		},
		{
			name: "consecutive separators collapsed",
			in:   "Bid  --  Adjustment",
			want: "bid_adjustment",
		},
		{
			name: "leading and trailing separators trimmed",
			in:   " (Parent Id) ",
			want: "parent_id",
		},
		{
			name: "digits kept",
			in:   "Format Version 6",
			want: "format_version_6",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	tests := []struct {
		prefix, recordType, want string
	}{
		{"bulk", "Ad Group Location Target", "bulk_ad_group_location_target"},
		{"", "Keyword", "keyword"},
		{"My-Ads", "Campaign Negative Keyword", "my_ads_campaign_negative_keyword"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Table(tt.prefix, tt.recordType); got != tt.want {
				t.Errorf("Table(%q, %q) = %q, want %q", tt.prefix, tt.recordType, got, tt.want)
			}
		})
	}
}

func TestColumn(t *testing.T) {
	if got := Column("Error Number"); got != "error_number" {
		t.Errorf("Column = %q", got)
	}
}
