// Package integrationtests runs scripts through the full application.
package integrationtests
