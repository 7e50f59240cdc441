package model

import "gorm.io/gorm/clause"

const clauseAssociations = clause.Associations

// onConflictDoNothing turns a unique index hit into a no-op insert, which is
// how every "create if absent" in the pipeline stays race free.
var onConflictDoNothing = clause.OnConflict{DoNothing: true}
