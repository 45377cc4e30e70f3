// Package camera relays live sample-camera frames to streaming clients and
// writes snapshots to disk.
//
// The Relay holds one latest frame and one single-slot mailbox per
// subscriber. Publishing overwrites each mailbox and wakes its reader, so a
// slow reader skips frames instead of stalling the producer:
//
//	relay := camera.NewRelay(10 * time.Second)
//	cam.SetFrameHandler(relay.Publish)
//
//	sub := relay.Subscribe()
//	defer sub.Close()
//	for {
//	    frame, err := sub.Next(ctx)
//	    if err != nil {
//	        return err // ErrClosed, ErrFrameTimeout or ctx.Err()
//	    }
//	    write(frame.Data)
//	}
//
// CloseAll ends every open stream without affecting later subscribers.
package camera
