// Package centring owns the sample-centring state of the service: the
// registry of saved centred positions, the ring buffer of recent image
// clicks, and the Service that passes operator commands through to the
// diffractometer and camera.
//
// Saved positions live for the process lifetime only. Names are generated
// as "pos<N>" where N is the registry length plus one, so a name can repeat
// after a delete; rename does not enforce uniqueness either. Every
// name-based operation therefore acts on all entries carrying that name.
//
// Service methods return errors that wrap the sentinels of this package
// and of package diffractometer; ErrorKind classifies them for logs and
// metrics.
package centring
