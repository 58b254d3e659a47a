// pkg/core/session.go
package core

import "time"

// Session identifies one map session; markers live only for its duration
type Session struct {
	ID        string
	Name      string
	StartTime time.Time
}
