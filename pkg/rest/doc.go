// Package rest exposes resource operations as a JSON:API HTTP interface.
//
// Every entity of the current registry is served under its resource type:
//
//	Route                                         | Operation
//	----------------------------------------------|-------------------
//	GET    /{type}                                | list
//	POST   /{type}                                | create
//	GET    /{type}/{id}                           | fetch one
//	PATCH  /{type}/{id}                           | update
//	DELETE /{type}/{id}                           | delete
//	GET    /{type}/{id}/relationships/{rel}       | fetch linkage
//	POST   /{type}/{id}/relationships/{rel}       | add members
//	PATCH  /{type}/{id}/relationships/{rel}       | replace linkage
//	DELETE /{type}/{id}/relationships/{rel}       | remove members
//
// Query parameters of read operations:
//
//	Parameter                     | Description
//	------------------------------|------------------------------------------
//	?filter[field]=v              | field equals v
//	?filter[field][op]=v          | op is one of eq, ne, gt, gte, lt, lte, like, regexp, in, nin, some
//	?filter[field][in]=a,b        | list operands take comma separated values
//	?filter[relation][eq]=null    | resources without a related resource (ne: with one)
//	?filter[relation.field][op]=v | condition on a related resource
//	?sort=-field,relation.field   | order, "-" for descending
//	?fields[type]=a,b             | sparse fieldset of the requested type
//	?fields[relation]=c           | sparse fieldset of an included relation
//	?include=r1,r2                | side-load related resources
//	?page[number]=1&page[size]=20 | page window
//
// Problems are reported as {"errors":[{"code","message","path"}]}.
//
// Writes honor "Prefer: return=minimal" by answering 204 without a body.
package rest
