package entity

import (
	"time"

	"github.com/infobloxopen/cq-source-bulk/internal/mapping"
)

// Record types of the single-record entities.
const (
	TypeCampaign                = "Campaign"
	TypeAdGroup                 = "Ad Group"
	TypeKeyword                 = "Keyword"
	TypeCampaignNegativeKeyword = "Campaign Negative Keyword"
	TypeAdGroupNegativeKeyword  = "Ad Group Negative Keyword"
)

// Campaign is a single-record entity. Its parent is the account.
type Campaign struct {
	Common
	Identity
	Name             string
	Budget           *float64
	BudgetType       *string
	TimeZone         *string
	TrackingTemplate *string
}

func (*Campaign) RecordType() string { return TypeCampaign }

var campaignSchema = mapping.NewSchema(TypeCampaign,
	mapping.Embed(commonTable, func(c *Campaign) *Common { return &c.Common }),
	mapping.Embed(identityTable, func(c *Campaign) *Identity { return &c.Identity }),
	mapping.Table[*Campaign]{
		mapping.Text(ColumnCampaign, func(c *Campaign) *string { return &c.Name }).Req(),
		mapping.OptionalFloat("Budget", func(c *Campaign) **float64 { return &c.Budget }),
		mapping.OptionalText("Budget Type", func(c *Campaign) **string { return &c.BudgetType }),
		mapping.OptionalText("Time Zone", func(c *Campaign) **string { return &c.TimeZone }),
		mapping.OptionalText("Tracking Template", func(c *Campaign) **string { return &c.TrackingTemplate }).From(mapping.V6),
	},
)

// AdGroup is a single-record entity whose parent is a campaign.
type AdGroup struct {
	Common
	Identity
	CampaignName string
	Name         string
	StartDate    *time.Time
	EndDate      *time.Time
	CpcBid       *float64
	Network      *string
}

func (*AdGroup) RecordType() string { return TypeAdGroup }

var adGroupSchema = mapping.NewSchema(TypeAdGroup,
	mapping.Embed(commonTable, func(a *AdGroup) *Common { return &a.Common }),
	mapping.Embed(identityTable, func(a *AdGroup) *Identity { return &a.Identity }),
	mapping.Table[*AdGroup]{
		mapping.Text(ColumnCampaign, func(a *AdGroup) *string { return &a.CampaignName }),
		mapping.Text(ColumnAdGroup, func(a *AdGroup) *string { return &a.Name }).Req(),
		mapping.OptionalDate("Start Date", func(a *AdGroup) **time.Time { return &a.StartDate }),
		mapping.OptionalDate("End Date", func(a *AdGroup) **time.Time { return &a.EndDate }),
		mapping.OptionalFloat("Cpc Bid", func(a *AdGroup) **float64 { return &a.CpcBid }),
		mapping.OptionalText("Network", func(a *AdGroup) **string { return &a.Network }),
	},
)

// Keyword is a single-record entity whose parent is an ad group.
type Keyword struct {
	Common
	Identity
	CampaignName string
	AdGroupName  string
	Text         string
	MatchType    string
	Bid          *float64
	FinalURL     *string
}

func (*Keyword) RecordType() string { return TypeKeyword }

var keywordSchema = mapping.NewSchema(TypeKeyword,
	mapping.Embed(commonTable, func(k *Keyword) *Common { return &k.Common }),
	mapping.Embed(identityTable, func(k *Keyword) *Identity { return &k.Identity }),
	mapping.Table[*Keyword]{
		mapping.Text(ColumnCampaign, func(k *Keyword) *string { return &k.CampaignName }),
		mapping.Text(ColumnAdGroup, func(k *Keyword) *string { return &k.AdGroupName }),
		mapping.Text("Keyword", func(k *Keyword) *string { return &k.Text }).Req(),
		mapping.Text("Match Type", func(k *Keyword) *string { return &k.MatchType }),
		mapping.OptionalFloat("Bid", func(k *Keyword) **float64 { return &k.Bid }),
		mapping.OptionalText("Final Url", func(k *Keyword) **string { return &k.FinalURL }).From(mapping.V6),
	},
)

// NegativeKeywordLevel is the kind of entity a negative keyword is attached to.
type NegativeKeywordLevel int

const (
	CampaignLevel NegativeKeywordLevel = iota
	AdGroupLevel
)

// ParentColumn is the column holding the parent entity's name.
func (l NegativeKeywordLevel) ParentColumn() string {
	if l == AdGroupLevel {
		return ColumnAdGroup
	}
	return ColumnCampaign
}

// NegativeKeyword is a negative keyword attached to a campaign or an ad
// group. The parent's name lives in the column named after the parent type.
type NegativeKeyword struct {
	Common
	Identity
	Level      NegativeKeywordLevel
	ParentName string
	Text       string
	MatchType  string
}

func (n *NegativeKeyword) RecordType() string {
	if n.Level == AdGroupLevel {
		return TypeAdGroupNegativeKeyword
	}
	return TypeCampaignNegativeKeyword
}

var negativeKeywordSchema = mapping.NewSchema("Negative Keyword",
	mapping.Embed(commonTable, func(n *NegativeKeyword) *Common { return &n.Common }),
	mapping.Embed(identityTable, func(n *NegativeKeyword) *Identity { return &n.Identity }),
	mapping.Table[*NegativeKeyword]{
		mapping.Text("", func(n *NegativeKeyword) *string { return &n.ParentName }).
			Named(func(n *NegativeKeyword) string { return n.Level.ParentColumn() }),
		mapping.Text("Keyword", func(n *NegativeKeyword) *string { return &n.Text }).Req(),
		mapping.Text("Match Type", func(n *NegativeKeyword) *string { return &n.MatchType }),
	},
)
