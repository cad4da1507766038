package adfs

import "time"

// RISC OS stores a file type and a time stamp in the load and execution
// addresses when the top 12 bits of the load address are all set:
//
//	load: 0xFFFtttcc  ttt = file type, cc = high byte of the time
//	exec: 0xcccccccc  low 32 bits of the time
//
// The time counts centiseconds since 1900-01-01 00:00:00 UTC in 40 bits.
const (
	stampMask      = 0xFFF0_0000
	maxCentisecond = 1<<40 - 1
	// Seconds from 1900-01-01 to the Unix epoch.
	epoch1900 = -2208988800
)

// IsStamped reports whether the load and execution addresses hold a file
// type and time stamp instead of addresses.
func (obj *Object) IsStamped() bool {
	return obj.LoadAddr&stampMask == stampMask
}

// FileType returns the 12 bit RISC OS file type, or -1 if the object is not stamped.
func (obj *Object) FileType() int {
	if !obj.IsStamped() {
		return -1
	}
	return int(obj.LoadAddr>>8) & 0xfff
}

// ModTime returns the object's time stamp, or the zero time if it is not stamped.
func (obj *Object) ModTime() time.Time {
	if !obj.IsStamped() {
		return time.Time{}
	}
	cs := uint64(obj.LoadAddr&0xff)<<32 | uint64(obj.ExecAddr)
	return time.Unix(epoch1900+int64(cs/100), int64(cs%100)*1e7).UTC()
}

// SetStamp replaces the load and execution addresses with a file type and
// time stamp. Times outside the 40 bit range are clamped.
func (obj *Object) SetStamp(filetype int, t time.Time) {
	secs := t.Unix() - epoch1900
	var cs uint64
	switch {
	case secs < 0:
		cs = 0
	case uint64(secs) > maxCentisecond/100:
		cs = maxCentisecond
	default:
		cs = min(uint64(secs)*100+uint64(t.Nanosecond()/1e7), maxCentisecond)
	}
	obj.LoadAddr = stampMask | uint32(filetype&0xfff)<<8 | uint32(cs>>32)
	obj.ExecAddr = uint32(cs)
}
