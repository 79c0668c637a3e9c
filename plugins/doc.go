/*
Package plugins implements the registry that creates the filter and
predicate instances of the routes.

A plugin is identified by its name and version. The registry resolves a
plugin in the following order:

1. a module that was already loaded,

2. a bundled module, compiled into the gateway and registered with
Register,

3. the install directory <PluginHome>/<name>/<version>/. When the
directory does not exist, the archive
<Repository>/<name>/<version>/<name>-<version>.tar.gz is downloaded and
unpacked into it.

The install directory contains one or more Go plugins, files with the .so
extension built with -buildmode=plugin. Without a manifest, every .so file
is opened, and exactly one of them must export the symbol NewInstance:

	func NewInstance() filters.Configurable

The optional plugin.yaml manifest names the entry file, and the libraries
that need to be opened before it:

	name: my-filter
	version: 1.0.0
	entry: filter.so
	libraries:
	- support.so

Every plugin version is kept in the registry under its own key, so two
versions of the same plugin can serve different routes at the same time.
The Go runtime identifies a loaded plugin by its plugin path, therefore
the versions need to be built with distinct plugin paths, e.g.:

	go build -buildmode=plugin -ldflags="-pluginpath=my-filter@1.0.0" -o filter.so

The instances are created with NewInstance and configured with the JSON
configuration of the route. Failing to find, install or open a plugin is
reported as a *LoadError, rejecting its configuration as a *ConfigError.
*/
package plugins
