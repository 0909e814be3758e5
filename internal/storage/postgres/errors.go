package postgres

import "github.com/blastline/blastline/internal/storage/model"

var ErrNotFound = model.ErrNotFound
