package kitutil

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialector picks the gorm driver from the scheme of databaseURL. An empty
// URL selects the sqlite file fallback; a URL without a known scheme is
// taken as a postgres keyword/value DSN.
func Dialector(databaseURL, fallback string) gorm.Dialector {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL)
	case strings.HasPrefix(databaseURL, "mysql://"):
		return mysql.Open(strings.TrimPrefix(databaseURL, "mysql://"))
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://"))
	case databaseURL == "":
		return sqlite.Open(fallback)
	}
	return postgres.Open(databaseURL)
}

// OpenDB connects and migrates models. Driver errors are translated so that
// repositories can match gorm.ErrDuplicatedKey.
func OpenDB(databaseURL, fallback string, models ...interface{}) (*gorm.DB, error) {
	db, err := gorm.Open(Dialector(databaseURL, fallback), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}
