// Package blog implements the post operations and the ownership rule
// that guards them: only the author of a post may change or remove it,
// and authorship is checked against the store on every request.
package blog
