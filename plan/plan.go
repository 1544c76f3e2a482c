package plan

import (
	"time"

	"github.com/kbukum/planengine/database"
)

// Plan is the static execution graph for one pipeline definition
// instance. Node rows are persisted separately; the Plan record keeps
// only their ids so nodes can be fetched independently.
type Plan struct {
	ID             string               `gorm:"primaryKey;size:64"`
	NodeIDs        database.StringSlice `gorm:"type:text"`
	StartingNodeID string               `gorm:"size:64"`
	Metadata       database.JSONMap     `gorm:"type:text"`
	CreatedAt      time.Time            `gorm:"autoCreateTime"`

	// Nodes carries the graph's vertices on the way into Save; it is
	// never persisted on the Plan row itself.
	Nodes []Node `gorm:"-" json:"-"`
}

// TableName sets the plan table name.
func (Plan) TableName() string { return "plans" }
