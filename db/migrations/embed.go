// db/migrations/embed.go

package migrations

import "embed"

// CRM entity tables
//go:embed 000001_crm_entities.up.sql
var CRMEntitiesUp string

//go:embed 000001_crm_entities.down.sql
var CRMEntitiesDown string

// Automation engine tables
//go:embed 000002_automation_engine.up.sql
var AutomationEngineUp string

//go:embed 000002_automation_engine.down.sql
var AutomationEngineDown string

//go:embed *.sql
var SQLFiles embed.FS
