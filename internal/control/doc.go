// Package control runs the synchronization loop between the requested and
// observed valve state.
//
// Loop wakes once per Period. Each cycle it copies the mode flags of the
// latest RequestedControl into ObservedState and, when no movement is in
// progress, decides whether to start one:
//
//   - with no automatic mode selected, a standing set_angle request is
//     dispatched whenever the motor's position differs from it (0 closes,
//     90 opens), so a failed movement is retried on the next idle cycle;
//     any other angle records code 901 once per write without moving
//   - with schedule mode selected, the most recent pending schedule target
//     is dispatched
//
// Movements run on their own goroutine so a 10 second actuation never
// blocks the loop. The loop's phase (Idle or Actuating) is owned by the loop
// goroutine alone, which is what makes a second concurrent movement
// impossible. Outcomes are written to history and metrics when the movement
// reports back.
package control
