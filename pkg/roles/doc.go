// Package roles manages the role registry. A role carries no behavior of
// its own; its meaning is the set of permission matrix rows keyed by its
// ID. Deleting a role removes those rows in the same transaction so no
// grant can outlive its role.
package roles
