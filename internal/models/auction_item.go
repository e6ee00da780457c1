package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// AuctionItem is the unified record shape shared by every source adapter.
// lot_number is source-qualified and globally unique; it is the only key
// used for upsert matching.
type AuctionItem struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	LotNumber  string  `gorm:"type:text;uniqueIndex;not null"`
	SaleNumber *string `gorm:"type:text;index"`
	Source     string  `gorm:"type:text;index;not null"`

	Title       string         `gorm:"type:text;not null"`
	Description string         `gorm:"type:text"`
	AssetType   string         `gorm:"type:text;index;default:other"`
	Agency      *string        `gorm:"type:text"`
	ItemURL     *string        `gorm:"type:text"`
	ImageURLs   datatypes.JSON `gorm:"type:jsonb"`

	CurrentBid     decimal.Decimal  `gorm:"type:numeric(20,2);not null;default:0"`
	MinimumBid     *decimal.Decimal `gorm:"type:numeric(20,2)"`
	BidIncrement   *decimal.Decimal `gorm:"type:numeric(20,2)"`
	NextMinimumBid *decimal.Decimal `gorm:"type:numeric(20,2)"`
	Currency       string           `gorm:"type:text;not null;default:USD"`

	Country    string  `gorm:"type:text"`
	City       string  `gorm:"type:text"`
	Region     string  `gorm:"type:text"`
	PostalCode *string `gorm:"type:text"`
	AddressRaw string  `gorm:"type:text"`

	// Both stored as naive UTC: adapters convert before handing records over.
	ClosingDate   *time.Time `gorm:"type:timestamp;index"`
	BidDate       *time.Time `gorm:"type:timestamp"`
	TimeRemaining *string    `gorm:"type:text"`

	ContactName  *string `gorm:"type:text"`
	ContactPhone *string `gorm:"type:text"`
	ContactEmail *string `gorm:"type:text"`

	Status      string `gorm:"type:text;index;not null;default:active"`
	IsAvailable bool   `gorm:"not null;default:true;index"`
	Quantity    int    `gorm:"not null;default:1"`

	ExtraData datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamp;not null;index"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;index"`
}

func (AuctionItem) TableName() string {
	return "auction_items"
}

// Record status values.
const (
	StatusActive   = "active"
	StatusUpcoming = "upcoming"
	StatusClosed   = "closed"
	StatusExpired  = "expired"
)

// AssetTypeOther is the classifier fallback bucket.
const AssetTypeOther = "other"

// Known source identifiers.
const (
	SourceGCSurplus = "gcsurplus"
	SourceGSA       = "gsa"
	SourceTreasury  = "treasury"
	SourceStateDept = "state_dept"
)

// Sources lists every configured adapter source in scrape order.
var Sources = []string{SourceGCSurplus, SourceGSA, SourceTreasury, SourceStateDept}
