// Package dynamodb provides persistence drivers that store data in Amazon
// DynamoDB tables.
package dynamodb
