/*
Package coreerrors defines the error kinds this core raises, as
categories rather than exhaustive type names, per spec §7. Callers use
errors.Is against the sentinel Kind values and errors.As against
*CoreError to recover the structured detail (which certificate, which
invariant) a diagnosing operator needs.
*/
package coreerrors
