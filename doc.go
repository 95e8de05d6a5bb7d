// Package armcore is the motion execution core for a six joint hobby arm
// with a gripper. It runs a fixed-cadence execution loop over an
// interchangeable driver (simulation or Feetech STS servo bus), a bounded
// command queue with enqueue-time validation, a teleop intent register fed
// by keyboard, gamepad and hand-gesture adapters, and a telemetry publisher
// that snapshots joint state on its own cadence.
package armcore
