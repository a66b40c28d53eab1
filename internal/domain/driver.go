package domain

import "time"

// DriverSession represents one online period for a driver. It is created on
// go-online and closed on go-offline; prolonged heartbeat silence is treated
// as implicitly offline by the remote side, not by the client.
type DriverSession struct {
	ID            string
	DriverID      string
	Online        bool
	StartedAt     time.Time
	EndedAt       time.Time
	LastHeartbeat time.Time
	LastLocation  LatLng
	OnlineMinutes float64
}

// OnlineDriver is one entry of a proximity query result.
type OnlineDriver struct {
	DriverID      string
	Location      LatLng
	DistanceMiles float64
	LastHeartbeat time.Time
}
