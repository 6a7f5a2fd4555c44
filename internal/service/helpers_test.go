package service

import "github.com/raphaelgruber/mindbase/internal/db"

func listOpts(owner string) db.ListOptions {
	return db.ListOptions{Owner: owner, Limit: 100}
}
