// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

// Package validation wraps a single go-playground/validator v10 instance.
//
// Errors name fields by their json tag, falling back to koanf, so a rejected
// runtime config update reports "max_backups must be at most 100" rather
// than a Go field name. The extra "backupid" tag guards catalog ids against
// path tricks before they are joined onto the backup directory.
//
//	if err := validation.ValidateStruct(&cfg); err != nil {
//	    var sve *validation.StructValidationError
//	    if errors.As(err, &sve) {
//	        fmt.Println(sve.Fields()) // [max_backups]
//	    }
//	}
//
// All functions are safe for concurrent use.
package validation
