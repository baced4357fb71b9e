// Package rules implements the window rule engine. Rules are declared by
// the config runtime, accumulate in declaration order, and are evaluated
// once per window at map time. Later rules override earlier ones field by
// field; unset action fields leave earlier decisions intact. The whole
// rule set is cleared on config reload so a respawned config process
// starts from a clean slate.
package rules
