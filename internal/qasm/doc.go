// Package qasm normalizes OpenQASM circuit text into the OpenQASM 2.0 dialect
// accepted by the execution backends. Normalization is a single line-oriented
// pass with no shared state; it rewrites register declarations and measurement
// assignments written in OpenQASM 3.0 and passes every other line through in
// its original order.
package qasm
