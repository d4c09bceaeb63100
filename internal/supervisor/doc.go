// Package supervisor restarts failing long-running tasks with backoff.
//
// A supervised Task is any blocking func(ctx) error. Clean exits stop
// supervision; errors trigger a restart after a doubling delay capped
// at MaxBackoff. Runs that survive the stability window reset the
// delay, so a component that crashes after hours of service is not
// penalised like one that flaps at startup.
//
// The bridge uses it for optional components whose backends may be
// unreachable at boot, such as the history sink.
package supervisor
