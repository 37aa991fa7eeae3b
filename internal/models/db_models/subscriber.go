package db_models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Subscriber struct {
	BaseModel
	Email          string  `gorm:"size:255;not null;uniqueIndex"`
	FirstName      *string `gorm:"size:100"`
	LastName       *string `gorm:"size:100"`
	Subscribed     bool    `gorm:"not null;default:true"`
	SubscribedAt   time.Time
	UnsubscribedAt *time.Time
	EmailVerified  bool           `gorm:"not null;default:false"`
	Preferences    datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	Tokens []Token `gorm:"foreignKey:SubscriberID"`
}

type Preferences struct {
	Updates    bool `json:"updates"`
	Promotions bool `json:"promotions"`
}

func (p Preferences) ToJSON() datatypes.JSON {
	raw, _ := json.Marshal(p)
	return datatypes.JSON(raw)
}
